package storagerouter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/basestub/basestub/pkg/httputil"
	"github.com/basestub/basestub/pkg/sqlengine"
	"github.com/basestub/basestub/pkg/storagehandler"
)

// maxUploadBytes bounds a single upload body read.
const maxUploadBytes = 50 << 20

// Router serves /storage/v1/*.
type Router struct {
	handler  *storagehandler.Handler
	engine   *sqlengine.Engine
	resolver sqlengine.Resolver
	mux      *mux.Router
}

// New builds the route table. resolver may be nil, in which case every
// caller binds as anonymous (uploads then record no owner).
func New(handler *storagehandler.Handler, engine *sqlengine.Engine, resolver sqlengine.Resolver) *Router {
	rt := &Router{handler: handler, engine: engine, resolver: resolver}

	r := mux.NewRouter()
	v1 := r.PathPrefix("/storage/v1").Subrouter()

	v1.HandleFunc("/bucket", rt.listBuckets).Methods(http.MethodGet)
	v1.HandleFunc("/bucket", rt.createBucket).Methods(http.MethodPost)
	v1.HandleFunc("/bucket/{id}", rt.getBucket).Methods(http.MethodGet)
	v1.HandleFunc("/bucket/{id}", rt.updateBucket).Methods(http.MethodPut)
	v1.HandleFunc("/bucket/{id}", rt.deleteBucket).Methods(http.MethodDelete)
	v1.HandleFunc("/bucket/{id}/empty", rt.emptyBucket).Methods(http.MethodPost)

	v1.HandleFunc("/object/move", rt.moveObject).Methods(http.MethodPost)
	v1.HandleFunc("/object/copy", rt.copyObject).Methods(http.MethodPost)
	v1.HandleFunc("/object/sign/{bucket}/{path:.+}", rt.signObject).Methods(http.MethodPost)
	v1.HandleFunc("/object/sign/{bucket}", rt.signBatch).Methods(http.MethodPost)
	v1.HandleFunc("/object/sign/{bucket}/{path:.+}", rt.downloadSigned).Methods(http.MethodGet)
	v1.HandleFunc("/object/public/{bucket}/{path:.+}", rt.downloadPublic).Methods(http.MethodGet)
	v1.HandleFunc("/object/info/{bucket}/{path:.+}", rt.objectInfo).Methods(http.MethodGet)
	v1.HandleFunc("/object/list/{bucket}", rt.listObjects).Methods(http.MethodPost)
	v1.HandleFunc("/object/{bucket}", rt.removeObjects).Methods(http.MethodDelete)
	v1.HandleFunc("/object/{bucket}/{path:.+}", rt.upload).Methods(http.MethodPost, http.MethodPut)
	v1.HandleFunc("/object/{bucket}/{path:.+}", rt.download).Methods(http.MethodGet)
	v1.HandleFunc("/object/{bucket}/{path:.+}", rt.head).Methods(http.MethodHead)

	v1.HandleFunc("/render/image/authenticated/{bucket}/{path:.+}", rt.download).Methods(http.MethodGet)
	v1.HandleFunc("/render/image/public/{bucket}/{path:.+}", rt.downloadPublic).Methods(http.MethodGet)

	rt.mux = r
	return rt
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

// bind establishes the caller's identity for the request and then
// resets the role, mirroring the privileged storage server: policies
// keyed on the bound claims still see the right values, while the
// operations themselves run unrestricted.
func (rt *Router) bind(r *http.Request) string {
	bearer := ""
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			bearer = parts[1]
		}
	}
	_ = rt.engine.BindBearer(r.Context(), bearer, rt.resolver)
	_ = rt.engine.ResetRole(r.Context())
	return rt.engine.CurrentClaims().Sub
}

// writeStorageError maps handler errors to the storage API's statuses.
func writeStorageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storagehandler.ErrBucketNotFound), errors.Is(err, storagehandler.ErrObjectNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, storagehandler.ErrBucketExists), errors.Is(err, storagehandler.ErrObjectExists),
		errors.Is(err, storagehandler.ErrBucketNotEmpty):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, storagehandler.ErrPayloadTooLarge), errors.Is(err, storagehandler.ErrMimeTypeNotAllowed):
		httputil.WriteErrorMessage(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, storagehandler.ErrBucketNotPublic):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, storagehandler.ErrInvalidSignature), errors.Is(err, storagehandler.ErrSignedURLExpired):
		httputil.WriteUnauthorized(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}

func (rt *Router) listBuckets(w http.ResponseWriter, r *http.Request) {
	rt.bind(r)
	buckets, err := rt.handler.ListBuckets(r.Context())
	if err != nil {
		writeStorageError(w, err)
		return
	}
	httputil.WriteSuccess(w, buckets)
}

func (rt *Router) createBucket(w http.ResponseWriter, r *http.Request) {
	rt.bind(r)
	var req storagehandler.CreateBucketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "malformed JSON body")
		return
	}
	bucket, err := rt.handler.CreateBucket(r.Context(), req)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"name": bucket.Name})
}

func (rt *Router) getBucket(w http.ResponseWriter, r *http.Request) {
	rt.bind(r)
	bucket, err := rt.handler.GetBucket(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStorageError(w, err)
		return
	}
	httputil.WriteSuccess(w, bucket)
}

func (rt *Router) updateBucket(w http.ResponseWriter, r *http.Request) {
	rt.bind(r)
	var req storagehandler.CreateBucketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "malformed JSON body")
		return
	}
	if _, err := rt.handler.UpdateBucket(r.Context(), mux.Vars(r)["id"], req); err != nil {
		writeStorageError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"message": "Successfully updated"})
}

func (rt *Router) deleteBucket(w http.ResponseWriter, r *http.Request) {
	rt.bind(r)
	if err := rt.handler.DeleteBucket(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeStorageError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"message": "Successfully deleted"})
}

func (rt *Router) emptyBucket(w http.ResponseWriter, r *http.Request) {
	rt.bind(r)
	if err := rt.handler.EmptyBucket(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeStorageError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"message": "Successfully emptied"})
}

// upload accepts either multipart form data (the first file field) or
// a raw body. PUT, or an x-upsert header, overwrites an existing
// object.
func (rt *Router) upload(w http.ResponseWriter, r *http.Request) {
	owner := rt.bind(r)
	vars := mux.Vars(r)

	data, contentType, err := readUploadBody(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	upsert := r.Method == http.MethodPut || strings.EqualFold(r.Header.Get("x-upsert"), "true")
	obj, err := rt.handler.Upload(r.Context(), storagehandler.UploadRequest{
		BucketID:     vars["bucket"],
		Name:         vars["path"],
		Data:         data,
		ContentType:  contentType,
		CacheControl: r.Header.Get("Cache-Control"),
		Upsert:       upsert,
		OwnerID:      owner,
	})
	if err != nil {
		writeStorageError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{
		"Id":  obj.ID,
		"Key": obj.Key(),
	})
}

func readUploadBody(r *http.Request) ([]byte, string, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		reader, err := r.MultipartReader()
		if err != nil {
			return nil, "", err
		}
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				return nil, "", errors.New("multipart body has no file field")
			}
			if err != nil {
				return nil, "", err
			}
			if part.FileName() == "" {
				continue
			}
			data, err := io.ReadAll(io.LimitReader(part, maxUploadBytes))
			if err != nil {
				return nil, "", err
			}
			partType := part.Header.Get("Content-Type")
			if partType == "" {
				partType = "application/octet-stream"
			}
			return data, partType, nil
		}
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

func (rt *Router) download(w http.ResponseWriter, r *http.Request) {
	rt.bind(r)
	vars := mux.Vars(r)
	rt.serveObject(w, r, vars["bucket"], vars["path"])
}

func (rt *Router) serveObject(w http.ResponseWriter, r *http.Request, bucket, path string) {
	data, meta, _, err := rt.handler.Download(r.Context(), bucket, path)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if meta.ContentType != "" {
		w.Header().Set("Content-Type", meta.ContentType)
	}
	if meta.CacheControl != "" {
		w.Header().Set("Cache-Control", meta.CacheControl)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (rt *Router) head(w http.ResponseWriter, r *http.Request) {
	rt.bind(r)
	vars := mux.Vars(r)
	exists, err := rt.handler.Exists(r.Context(), vars["bucket"], vars["path"])
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// downloadPublic serves objects from public buckets with no auth at
// all; a private bucket rejects with 400.
func (rt *Router) downloadPublic(w http.ResponseWriter, r *http.Request) {
	_ = rt.engine.ResetRole(r.Context())
	vars := mux.Vars(r)

	bucket, err := rt.handler.GetBucket(r.Context(), vars["bucket"])
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if !bucket.Public {
		writeStorageError(w, storagehandler.ErrBucketNotPublic)
		return
	}
	rt.serveObject(w, r, vars["bucket"], vars["path"])
}

func (rt *Router) objectInfo(w http.ResponseWriter, r *http.Request) {
	rt.bind(r)
	vars := mux.Vars(r)
	obj, err := rt.handler.GetObjectInfo(r.Context(), vars["bucket"], vars["path"])
	if err != nil {
		writeStorageError(w, err)
		return
	}
	httputil.WriteSuccess(w, objectInfoBody(obj))
}

// objectInfoBody is the camel-cased projection the Supabase Storage
// API returns for object info.
func objectInfoBody(obj *storagehandler.Object) map[string]any {
	return map[string]any{
		"id":             obj.ID,
		"name":           obj.Name,
		"bucketId":       obj.BucketID,
		"owner":          obj.OwnerID,
		"version":        obj.Version,
		"metadata":       obj.Metadata,
		"userMetadata":   obj.UserMetadata,
		"createdAt":      obj.CreatedAt,
		"updatedAt":      obj.UpdatedAt,
		"lastAccessedAt": obj.LastAccessedAt,
		"size":           obj.Metadata["size"],
		"contentType":    obj.Metadata["mimetype"],
		"cacheControl":   obj.Metadata["cacheControl"],
		"eTag":           obj.Metadata["eTag"],
	}
}

func (rt *Router) listObjects(w http.ResponseWriter, r *http.Request) {
	rt.bind(r)
	var opts storagehandler.ListOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && err != io.EOF {
		httputil.WriteBadRequest(w, "malformed JSON body")
		return
	}
	objects, err := rt.handler.List(r.Context(), mux.Vars(r)["bucket"], opts)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	httputil.WriteSuccess(w, objects)
}

func (rt *Router) removeObjects(w http.ResponseWriter, r *http.Request) {
	rt.bind(r)
	var body struct {
		Prefixes []string `json:"prefixes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteBadRequest(w, "malformed JSON body")
		return
	}
	removed, err := rt.handler.Remove(r.Context(), mux.Vars(r)["bucket"], body.Prefixes)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	httputil.WriteSuccess(w, removed)
}

func (rt *Router) moveObject(w http.ResponseWriter, r *http.Request) {
	rt.bind(r)
	var req storagehandler.MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "malformed JSON body")
		return
	}
	obj, err := rt.handler.Move(r.Context(), req)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"Key": obj.Key()})
}

func (rt *Router) copyObject(w http.ResponseWriter, r *http.Request) {
	rt.bind(r)
	var req storagehandler.MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "malformed JSON body")
		return
	}
	obj, err := rt.handler.Copy(r.Context(), req)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"Id": obj.ID, "Key": obj.Key()})
}

type signBody struct {
	ExpiresIn int      `json:"expiresIn"`
	Paths     []string `json:"paths"`
}

func (b signBody) ttl() time.Duration {
	if b.ExpiresIn == 0 {
		return time.Hour
	}
	return time.Duration(b.ExpiresIn) * time.Second
}

func (rt *Router) signObject(w http.ResponseWriter, r *http.Request) {
	rt.bind(r)
	vars := mux.Vars(r)

	var body signBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		httputil.WriteBadRequest(w, "malformed JSON body")
		return
	}

	token, err := rt.handler.CreateSignedToken(r.Context(), vars["bucket"], vars["path"], body.ttl())
	if err != nil {
		writeStorageError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]string{
		"signedURL": "/object/sign/" + vars["bucket"] + "/" + vars["path"] + "?token=" + token,
	})
}

func (rt *Router) signBatch(w http.ResponseWriter, r *http.Request) {
	rt.bind(r)
	vars := mux.Vars(r)

	var body signBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteBadRequest(w, "malformed JSON body")
		return
	}
	httputil.WriteSuccess(w, rt.handler.CreateSignedURLs(r.Context(), vars["bucket"], body.Paths, body.ttl()))
}

// downloadSigned serves an object purely on the strength of the token
// in the query string; no bearer auth is consulted.
func (rt *Router) downloadSigned(w http.ResponseWriter, r *http.Request) {
	_ = rt.engine.ResetRole(r.Context())
	vars := mux.Vars(r)

	payload, err := rt.handler.VerifySignedToken(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeStorageError(w, err)
		return
	}
	if payload.BucketID != vars["bucket"] || payload.ObjectName != vars["path"] {
		writeStorageError(w, storagehandler.ErrInvalidSignature)
		return
	}
	rt.serveObject(w, r, payload.BucketID, payload.ObjectName)
}

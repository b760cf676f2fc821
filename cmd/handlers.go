package cmd

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mordilloSan/go_logger/logger"

	"github.com/mordilloSan/sharingcart/backup"
	"github.com/mordilloSan/sharingcart/cart"
	"github.com/mordilloSan/sharingcart/storage"
)

func (d *daemon) handleTree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "use GET", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := requireUser(w, r.URL.Query().Get("user"))
	if !ok {
		return
	}

	out, err := d.view.Render(r.Context(), userID)
	if err != nil {
		logger.Errorf("Render failed for user %d: %v", userID, err)
		http.Error(w, fmt.Sprintf("render failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(out))
}

func (d *daemon) handleItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "use GET", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := requireUser(w, r.URL.Query().Get("user"))
	if !ok {
		return
	}

	items, err := d.store.ListItems(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, items)
}

func (d *daemon) handleAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "use POST", http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		UserID            int64  `json:"userid"`
		ModName           string `json:"modname"`
		ModIcon           string `json:"modicon"`
		ModText           string `json:"modtext"`
		Filename          string `json:"filename"`
		CourseFullName    string `json:"coursefullname"`
		Tree              string `json:"tree"`
		Weight            int    `json:"weight"`
		UninstalledPlugin bool   `json:"uninstalled_plugin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
		return
	}
	if payload.UserID <= 0 {
		http.Error(w, "userid is required", http.StatusBadRequest)
		return
	}

	it := &cart.Item{
		UserID:            payload.UserID,
		ModName:           payload.ModName,
		ModIcon:           payload.ModIcon,
		ModText:           payload.ModText,
		Filename:          payload.Filename,
		CourseFullName:    payload.CourseFullName,
		Tree:              payload.Tree,
		Weight:            payload.Weight,
		UninstalledPlugin: payload.UninstalledPlugin,
	}
	if err := d.store.AddItem(r.Context(), it); err != nil {
		http.Error(w, fmt.Sprintf("add failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, it)
}

func (d *daemon) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "use DELETE", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	userID, ok := requireUser(w, q.Get("user"))
	if !ok {
		return
	}
	id, err := strconv.ParseInt(strings.TrimSpace(q.Get("id")), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	if err := d.store.DeleteItem(r.Context(), userID, id); err != nil {
		if errors.Is(err, storage.ErrItemNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("delete failed: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (d *daemon) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		userID, ok := requireUser(w, r.URL.Query().Get("user"))
		if !ok {
			return
		}
		set, err := d.store.Capabilities(ctx, userID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"userid": userID, "capabilities": set.Names()})

	case http.MethodPost, http.MethodDelete:
		var payload struct {
			UserID       int64    `json:"userid"`
			Capabilities []string `json:"capabilities"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
			return
		}
		if payload.UserID <= 0 || len(payload.Capabilities) == 0 {
			http.Error(w, "userid and capabilities are required", http.StatusBadRequest)
			return
		}

		var err error
		if r.Method == http.MethodPost {
			err = d.store.Grant(ctx, payload.UserID, payload.Capabilities...)
		} else {
			err = d.store.Revoke(ctx, payload.UserID, payload.Capabilities...)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})

	default:
		http.Error(w, "use GET, POST or DELETE", http.StatusMethodNotAllowed)
	}
}

// handlePluginFile serves /pluginfile.php/<context>/<component>/<area>/<path...>/<filename>.
func (d *daemon) handlePluginFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "use GET", http.StatusMethodNotAllowed)
		return
	}
	if d.area == nil {
		http.Error(w, "backup directory not configured", http.StatusNotFound)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/pluginfile.php/"), "/")
	if len(parts) < 4 {
		http.NotFound(w, r)
		return
	}
	contextID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	filename := parts[len(parts)-1]

	ref, err := d.store.File(r.Context(), filename)
	if err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if ref.ContextID != contextID || ref.Component != parts[1] || ref.FileArea != parts[2] {
		http.NotFound(w, r)
		return
	}

	f, info, err := d.area.Open(ref.FileName)
	if err != nil {
		if errors.Is(err, backup.ErrInvalidName) || errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer func() { _ = f.Close() }()

	disposition := "inline"
	if r.URL.Query().Get("forcedownload") == "1" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": ref.FileName}))
	w.Header().Set("Content-Type", "application/vnd.moodle.backup")
	http.ServeContent(w, r, ref.FileName, info.ModTime(), f)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// requireUser parses the user query parameter, answering 400 when it is missing or invalid.
func requireUser(w http.ResponseWriter, q string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(q), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "user parameter is required", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// Minimal OpenAPI spec served at /openapi.json.
func serveOpenapi(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(openapiSpec))
}

const openapiSpec = `{
  "openapi": "3.0.0",
  "info": { "title": "Sharing Cart API", "version": "1.0.0" },
  "paths": {
    "/tree": { "get": { "summary": "Render a user's sharing cart as HTML", "parameters": [{ "in": "query", "name": "user", "required": true, "schema": {"type": "integer"} }], "responses": { "200": {"description": "HTML fragment"}, "400": {"description": "User required"} } } },
    "/items": { "get": { "summary": "List a user's cart items", "parameters": [{ "in": "query", "name": "user", "required": true, "schema": {"type": "integer"} }], "responses": { "200": {"description": "Items ordered by tree, weight and id"} } } },
    "/add": { "post": { "summary": "Add an item to a cart (filename generated when empty)", "responses": { "201": {"description": "Created item"}, "400": {"description": "Invalid body"} } } },
    "/delete": { "delete": { "summary": "Remove an item from a cart", "parameters": [{ "in": "query", "name": "user", "required": true, "schema": {"type": "integer"} }, { "in": "query", "name": "id", "required": true, "schema": {"type": "integer"} }], "responses": { "200": {"description": "OK"}, "404": {"description": "No such item"} } } },
    "/capabilities": {
      "get": { "summary": "List a user's capabilities", "parameters": [{ "in": "query", "name": "user", "required": true, "schema": {"type": "integer"} }], "responses": { "200": {"description": "Capabilities"} } },
      "post": { "summary": "Grant capabilities", "responses": { "200": {"description": "OK"} } },
      "delete": { "summary": "Revoke capabilities", "responses": { "200": {"description": "OK"} } }
    },
    "/pluginfile.php/{context}/{component}/{area}/{filename}": { "get": { "summary": "Download a backup file", "parameters": [{ "in": "query", "name": "forcedownload", "schema": {"type": "integer"} }], "responses": { "200": {"description": "File content"}, "404": {"description": "Not found"} } } },
    "/status": { "get": { "summary": "Get status", "responses": { "200": {"description": "Status"} } } },
    "/vacuum": { "post": { "summary": "Reclaim disk space (VACUUM)", "responses": { "202": {"description": "Started"}, "409": {"description": "Already running"} } } },
    "/vacuum/stream": { "post": { "summary": "VACUUM with server-sent progress events", "responses": { "200": {"description": "Event stream"}, "409": {"description": "Already running"} } } },
    "/scan/stream": { "post": { "summary": "Rescan the backup directory with server-sent progress events", "responses": { "200": {"description": "Event stream"}, "404": {"description": "No backup directory"}, "409": {"description": "Already running"} } } }
  }
}`

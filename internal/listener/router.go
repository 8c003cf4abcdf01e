package listener

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"

	"github.com/pixil98/go-town/internal/handlers"
)

// Router maps the town service's HTTP surface onto the request handlers.
type Router struct {
	mux     *http.ServeMux
	h       *handlers.Handlers
	origins []string
}

// NewRouter builds the HTTP surface. ws serves the event subscription socket.
// An empty origins list, or one containing "*", allows every origin.
func NewRouter(h *handlers.Handlers, ws http.Handler, origins []string) *Router {
	r := &Router{
		mux:     http.NewServeMux(),
		h:       h,
		origins: origins,
	}

	r.mux.HandleFunc("POST /sessions", r.joinTown)

	r.mux.HandleFunc("POST /towns", r.createTown)
	r.mux.HandleFunc("GET /towns", r.listTowns)
	r.mux.HandleFunc("GET /towns/{id}", r.townMembership)
	r.mux.HandleFunc("PATCH /towns/{id}", r.updateTown)
	r.mux.HandleFunc("DELETE /towns/{id}/{password}", r.deleteTown)

	r.mux.HandleFunc("POST /towns/{id}/blockers/{name}", r.listChange(h.AddBlocker))
	r.mux.HandleFunc("DELETE /towns/{id}/blockers/{name}", r.listChange(h.RemoveBlocker))
	r.mux.HandleFunc("POST /towns/{id}/admins/{name}", r.listChange(h.AddAdmin))
	r.mux.HandleFunc("DELETE /towns/{id}/admins/{name}", r.listChange(h.RemoveAdmin))

	r.mux.HandleFunc("POST /signup", r.signUp)
	r.mux.HandleFunc("GET /signup/{name}", r.checkUser)
	r.mux.HandleFunc("POST /signin", r.signIn)
	r.mux.HandleFunc("PATCH /profile/{name}", r.updateProfile)

	r.mux.Handle("GET /ws", ws)

	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.corsMiddleware(r.mux).ServeHTTP(w, req)
}

// AllowsOrigin reports whether a browser at origin may use a service
// configured with origins.
func AllowsOrigin(origins []string, origin string) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return true
	}
	return slices.Contains(origins, origin)
}

func (r *Router) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		origin := req.Header.Get("Origin")
		switch {
		case origin == "":
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case AllowsOrigin(r.origins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *Router) joinTown(w http.ResponseWriter, req *http.Request) {
	var body handlers.JoinRequest
	if !decodeBody(w, req, &body) {
		return
	}
	writeJSON(w, http.StatusOK, r.h.JoinTown(req.Context(), body))
}

func (r *Router) createTown(w http.ResponseWriter, req *http.Request) {
	var body handlers.CreateTownRequest
	if !decodeBody(w, req, &body) {
		return
	}
	writeJSON(w, http.StatusOK, r.h.CreateTown(req.Context(), body))
}

func (r *Router) listTowns(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.h.ListTowns(req.Context()))
}

func (r *Router) townMembership(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.h.TownMembership(req.Context(), req.PathValue("id")))
}

func (r *Router) updateTown(w http.ResponseWriter, req *http.Request) {
	var body handlers.UpdateTownRequest
	if !decodeBody(w, req, &body) {
		return
	}
	body.TownID = req.PathValue("id")
	writeJSON(w, http.StatusOK, r.h.UpdateTown(req.Context(), body))
}

func (r *Router) deleteTown(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.h.DeleteTown(req.Context(), handlers.DeleteTownRequest{
		TownID:   req.PathValue("id"),
		Password: req.PathValue("password"),
	}))
}

type listChangeFunc func(ctx context.Context, req handlers.ListChangeRequest) handlers.Envelope[handlers.Empty]

func (r *Router) listChange(fn listChangeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, fn(req.Context(), handlers.ListChangeRequest{
			TownID:    req.PathValue("id"),
			Name:      req.PathValue("name"),
			Requester: req.URL.Query().Get("requester"),
		}))
	}
}

func (r *Router) signUp(w http.ResponseWriter, req *http.Request) {
	var body handlers.SignUpRequest
	if !decodeBody(w, req, &body) {
		return
	}
	writeJSON(w, http.StatusOK, r.h.SignUp(req.Context(), body))
}

func (r *Router) checkUser(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.h.CheckUser(req.Context(), req.PathValue("name")))
}

func (r *Router) signIn(w http.ResponseWriter, req *http.Request) {
	var body handlers.SignInRequest
	if !decodeBody(w, req, &body) {
		return
	}
	writeJSON(w, http.StatusOK, r.h.SignIn(req.Context(), body))
}

func (r *Router) updateProfile(w http.ResponseWriter, req *http.Request) {
	var body handlers.UpdateProfileRequest
	if !decodeBody(w, req, &body) {
		return
	}
	body.UserName = req.PathValue("name")
	writeJSON(w, http.StatusOK, r.h.UpdateProfile(req.Context(), body))
}

const maxBodyBytes = 1 << 20

// decodeBody reads a JSON request body. On failure it writes a 400 envelope and returns false.
func decodeBody(w http.ResponseWriter, req *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, handlers.Envelope[handlers.Empty]{Message: "Error: malformed request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

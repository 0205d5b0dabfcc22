package handlers

import (
	"net/http"
	"runtime"
	"time"
)

// ListenerCounter is implemented by auth backends that track session
// listeners.
type ListenerCounter interface {
	ListenerCount() int
}

type DebugHandler struct {
	Backend   string
	Cache     string
	Listeners ListenerCounter
	Started   time.Time
}

type StatusResponse struct {
	Backend       string `json:"backend"`
	Cache         string `json:"cache"`
	Uptime        string `json:"uptime"`
	AuthListeners int    `json:"auth_listeners"`
	Goroutines    int    `json:"goroutines"`
}

// Status reports runtime state useful when checking that session watches are
// torn down with their pages.
func (dh *DebugHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Backend:       dh.Backend,
		Cache:         dh.Cache,
		Uptime:        time.Since(dh.Started).Round(time.Second).String(),
		AuthListeners: -1,
		Goroutines:    runtime.NumGoroutine(),
	}
	if dh.Listeners != nil {
		resp.AuthListeners = dh.Listeners.ListenerCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

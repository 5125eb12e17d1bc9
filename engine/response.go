package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Response is the value returned by Handlers. It's just an http.Handler -
// the interface exists to make the intent of module code obvious.
type Response interface {
	ServeHTTP(http.ResponseWriter, *http.Request)
}

type responseFunc func(http.ResponseWriter, *http.Request)

func (f responseFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) { f(w, r) }

// JSON responds 200 with the JSON encoding of v.
func JSON(v any) Response {
	return responseFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("encoding json response", "error", err)
		}
	})
}

// JSONStatus responds with the given status code and the JSON encoding of v.
func JSONStatus(status int, v any) Response {
	return responseFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("encoding json response", "error", err)
		}
	})
}

func Redirect(url string, status int) Response {
	return responseFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, url, status)
	})
}

// Errorf logs the given message while returning a generic 500 error.
func Errorf(format string, args ...any) Response {
	return responseFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.Error(fmt.Sprintf(format, args...), "url", r.URL.Path)
		http.Error(w, "Internal error - please try again later", 500)
	})
}

// ClientErrorf returns the given message to the client verbatim.
// Don't leak anything interesting into it.
func ClientErrorf(status int, format string, args ...any) Response {
	return responseFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, fmt.Sprintf(format, args...), status)
	})
}

// HTML responds 200 with a pre-rendered html document.
func HTML(doc []byte) Response {
	return responseFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(doc)
	})
}

// WithCookie sets a cookie on whatever response wraps it.
func WithCookie(cook *http.Cookie, next Response) Response {
	return responseFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, cook)
		next.ServeHTTP(w, r)
	})
}

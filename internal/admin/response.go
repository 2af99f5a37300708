package admin

import (
	"net/http"

	json "github.com/goccy/go-json"
)

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	var res errorBody
	res.Error.Code = code
	res.Error.Message = msg
	_ = json.NewEncoder(w).Encode(res)
}

func badRequest(w http.ResponseWriter, msg string)   { writeError(w, http.StatusBadRequest, msg) }
func unauthorized(w http.ResponseWriter, msg string) { writeError(w, http.StatusUnauthorized, msg) }

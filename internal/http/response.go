package http

import (
	"encoding/json"
	"net/http"
)

// Respostas JSON ficam restritas às sondas (/health e /ready); as telas
// são sempre HTML.

type probeEnvelope struct {
	Data  any        `json:"data"`
	Error *probeFail `json:"error"`
}

type probeFail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON escreve envelope de sucesso.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	writeProbe(w, status, probeEnvelope{Data: data})
}

// WriteError escreve envelope de erro com código estável para alertas.
func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	writeProbe(w, status, probeEnvelope{Error: &probeFail{Code: code, Message: message, Details: details}})
}

func writeProbe(w http.ResponseWriter, status int, body probeEnvelope) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

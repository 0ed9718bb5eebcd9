// Upstream de teste para validar o gateway localmente:
//
//	UPSTREAM_URL=http://localhost:8081 go run ./cmd/gateway
//	for i in $(seq 1 12); do curl -s -o /dev/null -w '%{http_code}\n' -XPOST localhost:8080/api/auth/login; done
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

type echo struct {
	Method        string `json:"method"`
	Path          string `json:"path"`
	ForwardedFor  string `json:"forwardedFor,omitempty"`
	Authorization bool   `json:"authorization"`
}

func main() {
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Printf("Log: %s %s (xff=%q)\n", r.Method, r.URL.Path, r.Header.Get("X-Forwarded-For"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(echo{
			Method:        r.Method,
			Path:          r.URL.Path,
			ForwardedFor:  r.Header.Get("X-Forwarded-For"),
			Authorization: r.Header.Get("Authorization") != "",
		})
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	fmt.Printf("Servidor rodando em http://localhost%s\n", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		fmt.Printf("Erro ao subir o servidor: %s\n", err)
	}
}

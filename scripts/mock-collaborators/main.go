package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

type InvoiceRequest struct {
	OrderID string `json:"order_id"`
}

type InvoiceResponse struct {
	URL string `json:"url"`
}

func main() {
	port := ":8090"

	http.HandleFunc("/invoices", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req InvoiceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}

		// Simulate slight rendering delay
		time.Sleep(5 * time.Millisecond)

		resp := InvoiceResponse{
			URL: fmt.Sprintf("https://invoices.local/%s.pdf", req.OrderID),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(resp)

		log.Printf("Rendered mock invoice for order %s", req.OrderID)
	})

	http.HandleFunc("/notifications", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		log.Printf("Accepted mock notification (correlation %s)", r.Header.Get("X-Correlation-ID"))
	})

	log.Printf("Mock collaborator server starting on %s...", port)
	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal(err)
	}
}

package api

import "net/http"

type clientRequest struct {
	Name  string `json:"name" validate:"required,max=255"`
	Email string `json:"email" validate:"required,email,max=255"`
}

type averageResponse struct {
	ClientID int64  `json:"client_id"`
	Average  string `json:"average"`
}

// CreateClientHandler handles POST /v1/clients.
func (h *Handlers) CreateClientHandler(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	client, err := h.service.CreateClient(r.Context(), req.Name, req.Email)
	if err != nil {
		h.writeServiceError(w, "create_client", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, client)
}

// ListClientsHandler handles GET /v1/clients with an optional ?name= filter.
func (h *Handlers) ListClientsHandler(w http.ResponseWriter, r *http.Request) {
	clients, err := h.service.ListClients(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		h.writeServiceError(w, "list_clients", err)
		return
	}
	h.writeJSON(w, http.StatusOK, clients)
}

// GetClientHandler handles GET /v1/clients/{id}.
func (h *Handlers) GetClientHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	client, err := h.service.GetClient(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "get_client", err)
		return
	}
	h.writeJSON(w, http.StatusOK, client)
}

// UpdateClientHandler handles PUT /v1/clients/{id}.
func (h *Handlers) UpdateClientHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req clientRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	client, err := h.service.UpdateClient(r.Context(), id, req.Name, req.Email)
	if err != nil {
		h.writeServiceError(w, "update_client", err)
		return
	}
	h.writeJSON(w, http.StatusOK, client)
}

// DeleteClientHandler handles DELETE /v1/clients/{id}.
func (h *Handlers) DeleteClientHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteClient(r.Context(), id); err != nil {
		h.writeServiceError(w, "delete_client", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClientBalanceHandler handles GET /v1/clients/{id}/balance.
func (h *Handlers) ClientBalanceHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	summary, err := h.service.ClientBalance(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "client_balance", err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// ClientAccountsHandler handles GET /v1/clients/{id}/accounts.
func (h *Handlers) ClientAccountsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	accounts, err := h.service.ClientAccounts(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "client_accounts", err)
		return
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// ClientTransactionsHandler handles GET /v1/clients/{id}/transactions.
func (h *Handlers) ClientTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	txs, err := h.service.ClientTransactions(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "client_transactions", err)
		return
	}
	h.writeJSON(w, http.StatusOK, txs)
}

// ClientAverageTransactionHandler handles GET /v1/clients/{id}/transactions/average.
func (h *Handlers) ClientAverageTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	avg, err := h.service.ClientAverageTransaction(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "client_average_transaction", err)
		return
	}
	h.writeJSON(w, http.StatusOK, averageResponse{ClientID: id, Average: avg})
}

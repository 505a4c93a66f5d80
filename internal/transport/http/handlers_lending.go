package httptransport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	catalogmodels "biblioteca/internal/catalog/models"
	lendingmodels "biblioteca/internal/lending/models"
	"biblioteca/internal/library"
	id "biblioteca/pkg/domain"
	dErrors "biblioteca/pkg/domain-errors"
)

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	availableOnly, _ := strconv.ParseBool(r.URL.Query().Get("available"))
	run(h, w, r, h.lib.Catalog, availableOnly, http.StatusOK)
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := id.ParseItemID(chi.URLParam(r, "itemID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	run(h, w, r, h.lib.Item, itemID, http.StatusOK)
}

func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req catalogmodels.CreateItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	run(h, w, r, h.lib.CreateItem, &req, http.StatusCreated)
}

func (h *Handler) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req lendingmodels.BorrowRequest
	if !h.decode(w, r, &req) {
		return
	}
	itemID, err := id.ParseItemID(req.ItemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	in := library.BorrowInput{ItemID: itemID, DueInDays: req.DueInDays}
	if req.AccountID != "" {
		borrower, err := id.ParseAccountID(req.AccountID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		in.Borrower = &borrower
	}
	run(h, w, r, h.lib.Borrow, in, http.StatusCreated)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	loanID, err := id.ParseLoanID(chi.URLParam(r, "loanID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	run(h, w, r, h.lib.Return, loanID, http.StatusOK)
}

func (h *Handler) handleActiveLoans(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	run(h, w, r, h.lib.ActiveLoans, scope, http.StatusOK)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	run(h, w, r, h.lib.History, scope, http.StatusOK)
}

func (h *Handler) handleFines(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	run(h, w, r, h.lib.Fines, scope, http.StatusOK)
}

func (h *Handler) handleAllActiveLoans(w http.ResponseWriter, r *http.Request) {
	run(h, w, r, h.lib.AllActiveLoans, library.Empty{}, http.StatusOK)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	run(h, w, r, h.lib.Dashboard, library.Empty{}, http.StatusOK)
}

// scope reads the optional {accountID} path parameter and ?limit=.
func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (library.AccountScope, bool) {
	accountID, err := accountParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return library.AccountScope{}, false
	}
	scope := library.AccountScope{Account: accountID}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.writeError(w, r, dErrors.New(dErrors.CodeInvalidInput, "limit must be a non-negative integer"))
			return library.AccountScope{}, false
		}
		scope.Limit = limit
	}
	return scope, true
}

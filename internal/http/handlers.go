package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"splitledger/internal/core"
	"splitledger/internal/services"
)

// amountCents decodes a monetary amount into cents at the JSON boundary.
// Both forms are accepted: a number (12.34) or a decimal string ("12.34",
// comma separator allowed), the latter avoiding float round-tripping.
type amountCents int64

func (a *amountCents) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := core.ParseDecimalToCents(s)
		if err != nil {
			return err
		}
		*a = amountCents(v)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	v, err := core.CentsFromFloat(f)
	if err != nil {
		return err
	}
	*a = amountCents(v)
	return nil
}

func (a amountCents) Money() core.Money {
	return core.Money{Cents: int64(a)}
}

// writeDecodeFailure turns a request body decode error into a 400, keeping
// amount failures distinct from malformed JSON.
func writeDecodeFailure(w http.ResponseWriter, err error) {
	if errors.Is(err, core.ErrInvalidAmount) {
		writeFailure(w, http.StatusBadRequest, "Invalid amount")
		return
	}
	writeFailure(w, http.StatusBadRequest, "Invalid request body")
}

// Request bodies.
type (
	shareRequest struct {
		UserID string      `json:"userId"`
		Amount amountCents `json:"amount"`
	}

	createExpenseRequest struct {
		Amount      amountCents    `json:"amount"`
		Currency    string         `json:"currency"`
		SplitType   string         `json:"splitType"`
		GroupID     *string        `json:"groupId"`
		PayerID     string         `json:"payerId"`
		CategoryID  *string        `json:"categoryId"`
		Description string         `json:"description"`
		Splits      []shareRequest `json:"splits"`
	}

	adjustSettlementRequest struct {
		SenderID   string      `json:"senderId"`
		ReceiverID string      `json:"receiverId"`
		Amount     amountCents `json:"amount"`
		GroupID    *string     `json:"groupId"`
	}
)

type (
	splitResponse struct {
		ID        string  `json:"id"`
		ExpenseID string  `json:"expenseId"`
		UserID    string  `json:"userId"`
		Amount    float64 `json:"amount"`
		IsSettled bool    `json:"isSettled"`
	}

	expenseResponse struct {
		ID          string          `json:"id"`
		PayerID     string          `json:"payerId"`
		CreatorID   string          `json:"creatorId"`
		GroupID     *string         `json:"groupId,omitempty"`
		CategoryID  *string         `json:"categoryId,omitempty"`
		Amount      float64         `json:"amount"`
		Currency    string          `json:"currency"`
		SplitType   string          `json:"splitType"`
		Description string          `json:"description,omitempty"`
		CreatedAt   string          `json:"createdAt"`
		Splits      []splitResponse `json:"splits"`
	}

	settlementResponse struct {
		ID         string  `json:"id"`
		GroupID    string  `json:"groupId"`
		CreditorID string  `json:"creditorId"`
		DebtorID   string  `json:"debtorId"`
		Amount     float64 `json:"amount"`
		CreatedAt  string  `json:"createdAt"`
		UpdatedAt  string  `json:"updatedAt"`
	}
)

// identify reads the acting user from the identity headers set by the
// upstream session layer. An absent id rejects the request before any lookup.
func identify(r *http.Request) (core.User, error) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		return core.User{}, core.Unauthorized("Unauthorized")
	}
	role := core.Role(r.Header.Get("X-User-Role"))
	if !role.IsValid() {
		role = core.RoleUser
	}
	return core.User{ID: userID, Role: role}, nil
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	actor, err := identify(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req createExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeFailure(w, err)
		return
	}

	in := services.CreateExpenseInput{
		Amount:      req.Amount.Money(),
		Currency:    req.Currency,
		SplitType:   core.SplitType(req.SplitType),
		GroupID:     req.GroupID,
		PayerID:     req.PayerID,
		CategoryID:  req.CategoryID,
		Description: req.Description,
	}
	for _, sh := range req.Splits {
		in.Splits = append(in.Splits, services.ShareInput{
			UserID: sh.UserID,
			Amount: sh.Amount.Money(),
		})
	}

	result, err := s.expenses.CreateExpense(r.Context(), actor, in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	groupID := ""
	if result.Expense.GroupID != nil {
		groupID = *result.Expense.GroupID
	}
	s.logger.LogExpenseCreated(r.Context(), result.Expense.ID, result.Expense.Amount.Cents, groupID)

	writeSuccess(w, http.StatusCreated, "Expense created successfully", toExpenseResponse(result))
}

func (s *Server) handleAdjustSettlement(w http.ResponseWriter, r *http.Request) {
	actor, err := identify(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	settlementID := r.PathValue("settlementId")

	var req adjustSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeFailure(w, err)
		return
	}

	in := services.AdjustSettlementInput{
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		Amount:     req.Amount.Money(),
		GroupID:    req.GroupID,
	}

	change, err := s.settlements.AdjustSettlement(r.Context(), actor, settlementID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	st := change.Settlement
	s.logger.LogSettlementAdjusted(r.Context(), st.ID, st.CreditorID, st.DebtorID, st.Amount.Cents)

	writeSuccess(w, http.StatusOK, "Settlement updated successfully", nil)
}

func (s *Server) handleListSettlements(w http.ResponseWriter, r *http.Request) {
	actor, err := identify(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	groupID := r.PathValue("groupId")
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = actor.ID
	}

	settlements, err := s.settlements.SettlementsForUserInGroup(r.Context(), userID, groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	data := make([]settlementResponse, 0, len(settlements))
	for _, st := range settlements {
		data = append(data, toSettlementResponse(st))
	}
	writeSuccess(w, http.StatusOK, "Settlements retrieved successfully", data)
}

func toExpenseResponse(result services.CreateExpenseResult) expenseResponse {
	e := result.Expense
	resp := expenseResponse{
		ID:          e.ID,
		PayerID:     e.PayerID,
		CreatorID:   e.CreatorID,
		GroupID:     e.GroupID,
		CategoryID:  e.CategoryID,
		Amount:      e.Amount.Float64(),
		Currency:    e.Currency,
		SplitType:   string(e.SplitType),
		Description: e.Description,
		CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339),
		Splits:      make([]splitResponse, 0, len(result.Splits)),
	}
	for _, sp := range result.Splits {
		resp.Splits = append(resp.Splits, splitResponse{
			ID:        sp.ID,
			ExpenseID: sp.ExpenseID,
			UserID:    sp.UserID,
			Amount:    sp.Amount.Float64(),
			IsSettled: sp.IsSettled,
		})
	}
	return resp
}

func toSettlementResponse(st core.Settlement) settlementResponse {
	return settlementResponse{
		ID:         st.ID,
		GroupID:    st.GroupID,
		CreditorID: st.CreditorID,
		DebtorID:   st.DebtorID,
		Amount:     st.Amount.Float64(),
		CreatedAt:  st.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  st.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/vibetrade/studio/errs"
	"github.com/vibetrade/studio/internal/app/tools"
	"github.com/vibetrade/studio/internal/domain/slots"
)

// toolHandlers maps tool names onto facade calls. Every handler decodes its
// own argument shape; the facade owns all semantics.
var toolHandlers = map[string]func(*tools.Service, *http.Request) (any, error){
	"get_archetypes": func(svc *tools.Service, r *http.Request) (any, error) {
		var req struct {
			Kind string `json:"kind,omitempty"`
		}
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return svc.GetArchetypes(r.Context(), req.Kind)
	},
	"get_archetype_schema": func(svc *tools.Service, r *http.Request) (any, error) {
		var req struct {
			Type        string `json:"type"`
			IfNoneMatch string `json:"if_none_match,omitempty"`
		}
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return svc.GetArchetypeSchema(r.Context(), req.Type, req.IfNoneMatch)
	},
	"get_schema_example": func(svc *tools.Service, r *http.Request) (any, error) {
		var req struct {
			Type  string `json:"type"`
			Index int    `json:"index,omitempty"`
		}
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return svc.GetSchemaExample(r.Context(), req.Type, req.Index)
	},
	"create_card": func(svc *tools.Service, r *http.Request) (any, error) {
		var req tools.CreateCardRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return svc.CreateCard(r.Context(), req)
	},
	"get_card": func(svc *tools.Service, r *http.Request) (any, error) {
		var req struct {
			CardID string `json:"card_id"`
		}
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return svc.GetCard(r.Context(), req.CardID)
	},
	"list_cards": func(svc *tools.Service, r *http.Request) (any, error) {
		if err := decodeBody(r, &struct{}{}); err != nil {
			return nil, err
		}
		return svc.ListCards(r.Context())
	},
	"update_card": func(svc *tools.Service, r *http.Request) (any, error) {
		var req struct {
			CardID string     `json:"card_id"`
			Slots  slots.Tree `json:"slots"`
		}
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return svc.UpdateCard(r.Context(), req.CardID, req.Slots)
	},
	"delete_card": func(svc *tools.Service, r *http.Request) (any, error) {
		var req struct {
			CardID string `json:"card_id"`
		}
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return svc.DeleteCard(r.Context(), req.CardID)
	},
	"validate_slots_draft": func(svc *tools.Service, r *http.Request) (any, error) {
		var req struct {
			Type  string     `json:"type"`
			Slots slots.Tree `json:"slots"`
		}
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return svc.ValidateSlotsDraft(r.Context(), req.Type, req.Slots)
	},
	"create_strategy": func(svc *tools.Service, r *http.Request) (any, error) {
		var req tools.CreateStrategyRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return svc.CreateStrategy(r.Context(), req)
	},
	"get_strategy": func(svc *tools.Service, r *http.Request) (any, error) {
		var req struct {
			StrategyID string `json:"strategy_id"`
		}
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return svc.GetStrategy(r.Context(), req.StrategyID)
	},
	"list_strategies": func(svc *tools.Service, r *http.Request) (any, error) {
		if err := decodeBody(r, &struct{}{}); err != nil {
			return nil, err
		}
		return svc.ListStrategies(r.Context())
	},
	"update_strategy_meta": func(svc *tools.Service, r *http.Request) (any, error) {
		var req struct {
			StrategyID string `json:"strategy_id"`
			tools.UpdateStrategyMetaRequest
		}
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return svc.UpdateStrategyMeta(r.Context(), req.StrategyID, req.UpdateStrategyMetaRequest)
	},
	"add_card": func(svc *tools.Service, r *http.Request) (any, error) {
		var req tools.AddCardRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return svc.AddCard(r.Context(), req)
	},
	"remove_card": func(svc *tools.Service, r *http.Request) (any, error) {
		var req struct {
			StrategyID string `json:"strategy_id"`
			CardID     string `json:"card_id"`
		}
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return svc.RemoveCard(r.Context(), req.StrategyID, req.CardID)
	},
	"validate_strategy": func(svc *tools.Service, r *http.Request) (any, error) {
		var req struct {
			StrategyID string `json:"strategy_id"`
		}
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return svc.ValidateStrategy(r.Context(), req.StrategyID)
	},
	"compile_strategy": func(svc *tools.Service, r *http.Request) (any, error) {
		var req struct {
			StrategyID string `json:"strategy_id"`
		}
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return svc.CompileStrategy(r.Context(), req.StrategyID)
	},
}

// decodeBody parses the JSON request body into dst. An empty body decodes to
// the zero value so argument-free tools accept bare POSTs.
func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if isRequestTooLarge(err) {
			return err
		}
		return errs.Validation(fmt.Sprintf("Malformed request body: %v.", err))
	}
	return nil
}

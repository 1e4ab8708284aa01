package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/utils"
)

const maxBodyBytes = 64 << 10

var (
	errBadRequest = errors.New("bad request")
	validate      = validator.New()
)

type executeTransactionRequest struct {
	Service string            `json:"service" validate:"required"`
	Amount  string            `json:"amount" validate:"required"`
	PIN     string            `json:"pin" validate:"required,numeric,min=4,max=6"`
	Params  map[string]string `json:"params" validate:"omitempty,max=20,dive,keys,required,max=64,endkeys,max=256"`
}

type createPlanRequest struct {
	Name        string `json:"name" validate:"required,max=50"`
	DisplayName string `json:"display_name" validate:"max=100"`
}

type saveRateRequest struct {
	Service       string  `json:"service" validate:"required"`
	PlanID        int64   `json:"plan_id" validate:"required,gt=0"`
	Basis         string  `json:"basis" validate:"required,oneof=percentage fixed"`
	Value         string  `json:"value" validate:"required"`
	AdminShare    string  `json:"admin_share" validate:"required"`
	MasterShare   string  `json:"master_share" validate:"required"`
	DealerShare   string  `json:"dealer_share" validate:"required"`
	RetailerShare string  `json:"retailer_share" validate:"required"`
	MinAmount     *string `json:"min_amount"`
	MaxAmount     *string `json:"max_amount"`
	Active        *bool   `json:"active"`
}

type assignPlanRequest struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
	PlanID int64 `json:"plan_id" validate:"required,gt=0"`
}

// decode reads a JSON body into dst and runs its validation tags.
func decode(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body: %v", errBadRequest, err)
	}
	if err := validate.Struct(dst); err != nil {
		return err
	}
	return nil
}

func (req executeTransactionRequest) toDomain() (domain.ServiceRequest, error) {
	amount, err := utils.ParseAmount(req.Amount)
	if err != nil {
		return domain.ServiceRequest{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return domain.ServiceRequest{
		Service: domain.ServiceID(req.Service),
		Amount:  amount,
		PIN:     req.PIN,
		Params:  req.Params,
	}, nil
}

func (req saveRateRequest) toDomain() (*domain.ServiceCommissionRate, error) {
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"value", req.Value, new(decimal.Decimal)},
		{"admin_share", req.AdminShare, new(decimal.Decimal)},
		{"master_share", req.MasterShare, new(decimal.Decimal)},
		{"dealer_share", req.DealerShare, new(decimal.Decimal)},
		{"retailer_share", req.RetailerShare, new(decimal.Decimal)},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s is not a number", errBadRequest, f.name)
		}
		*f.dst = d
	}

	rate := &domain.ServiceCommissionRate{
		Service:       domain.ServiceID(req.Service),
		PlanID:        req.PlanID,
		Basis:         domain.CommissionBasis(req.Basis),
		Value:         *fields[0].dst,
		AdminShare:    *fields[1].dst,
		MasterShare:   *fields[2].dst,
		DealerShare:   *fields[3].dst,
		RetailerShare: *fields[4].dst,
		Active:        req.Active == nil || *req.Active,
	}
	if req.MinAmount != nil {
		d, err := utils.ParseAmount(*req.MinAmount)
		if err != nil {
			return nil, fmt.Errorf("%w: min_amount: %v", errBadRequest, err)
		}
		rate.MinAmount = decimal.NewNullDecimal(d)
	}
	if req.MaxAmount != nil {
		d, err := utils.ParseAmount(*req.MaxAmount)
		if err != nil {
			return nil, fmt.Errorf("%w: max_amount: %v", errBadRequest, err)
		}
		rate.MaxAmount = decimal.NewNullDecimal(d)
	}
	return rate, nil
}

package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/setledger_offline/utils"
	"github.com/google/uuid"
)

// NewDisplayId builds the short human-facing id shown on receipts and logs
// (POS123456, STK123456, RSV123456).
func NewDisplayId(prefix string) string {
	ms := fmt.Sprintf("%d", time.Now().UnixMilli())
	if len(ms) > 6 {
		ms = ms[len(ms)-6:]
	}
	return prefix + ms
}

func orgIdFromContext(ctx context.Context) (string, error) {
	orgId, ok := utils.GetOrgIdFromContext(ctx)
	if !ok || orgId == "" {
		return "", errors.New("org id is required")
	}
	return orgId, nil
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/finbot_backend/appctx"
)

var (
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyFromPhone     = appctx.ContextKeyFromPhone
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetFromPhoneFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyFromPhone)
}

func SetFromPhoneInContext(ctx context.Context, phone string) context.Context {
	return appctx.Set(ctx, ContextKeyFromPhone, phone)
}

// Package actorctx carries the acting user's id on a context.Context so
// layers below HTTP (repos, log handlers) can attribute work without
// depending on gin.
package actorctx

import "context"

type ctxKey string

const keyUserID ctxKey = "actor_user_id"

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

func UserIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyUserID).(string)

	return v, ok && v != ""
}

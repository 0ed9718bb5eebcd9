package log

import "context"

type ctxKey struct{}

// WithContext retorna um contexto que carrega o Logger.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retorna o Logger do contexto, ou Nop() se não houver.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok && l != nil {
		return l
	}
	return Nop()
}

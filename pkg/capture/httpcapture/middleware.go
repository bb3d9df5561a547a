package httpcapture

import "net/http"

// Middleware wraps a handler with hook. If the handler panics and hook
// implements PanicObserver, the panic is reported before being re-raised.
func Middleware(hook LifecycleHook) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cw, cr := hook.OnRequestStart(w, r)

			defer func() {
				if v := recover(); v != nil {
					if po, ok := hook.(PanicObserver); ok {
						po.OnHandlerPanic(cw, cr, v)
					}
					panic(v)
				}
			}()

			next.ServeHTTP(cw, cr)
			hook.OnResponseReady(cw, cr)
		})
	}
}

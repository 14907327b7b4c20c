package i18n

import "net/http"

// AutoLang selects the language from each request's Accept-Language header.
const AutoLang = "auto"

// Middleware injects the localizer for the given language into every request context.
// With AutoLang the localizer follows the browser's Accept-Language, falling back to English.
func Middleware(lang string) func(http.Handler) http.Handler {
	if lang != AutoLang {
		loc := NewLocalizer(lang)
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := WithLocalizer(r.Context(), loc)
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := NewLocalizer(r.Header.Get("Accept-Language"), "en")
			ctx := WithLocalizer(r.Context(), loc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

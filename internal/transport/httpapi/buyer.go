package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// DefaultBuyerHeader выставляет upstream auth gateway после проверки сессии.
const DefaultBuyerHeader = "X-Buyer-ID"

// ErrUnauthenticated — запрос пришёл без идентификатора покупателя.
var ErrUnauthenticated = errors.New("buyer is not authenticated")

// BuyerResolver определяет покупателя по входящему запросу.
type BuyerResolver interface {
	ResolveBuyer(r *http.Request) (int64, error)
}

// HeaderBuyerResolver доверяет заголовку, который проставил gateway.
type HeaderBuyerResolver struct {
	Header string
}

// NewHeaderBuyerResolver создаёт resolver; пустое имя означает X-Buyer-ID.
func NewHeaderBuyerResolver(header string) HeaderBuyerResolver {
	if header == "" {
		header = DefaultBuyerHeader
	}
	return HeaderBuyerResolver{Header: header}
}

func (h HeaderBuyerResolver) ResolveBuyer(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(h.Header))
	if raw == "" {
		return 0, ErrUnauthenticated
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad %s %q", ErrUnauthenticated, h.Header, raw)
	}
	return id, nil
}

// BuyerResolverFunc позволяет передать функцию как BuyerResolver.
type BuyerResolverFunc func(r *http.Request) (int64, error)

func (f BuyerResolverFunc) ResolveBuyer(r *http.Request) (int64, error) { return f(r) }

// Package classifier определяет, является ли входящий запрос обращением к короткой ссылке.
//
// Классификация не выполняет ввода-вывода и зависит только от метода, хоста, пути
// и настроенного корневого домена, поэтому её можно вызывать до любых запросов к хранилищу.
package classifier

import (
	"net"
	"net/http"
	"strings"

	"github.com/tempizhere/redirector/internal/models"
	"github.com/tempizhere/redirector/internal/shortcode"
)

// DefaultDevHosts хосты локальной разработки, которые считаются корневым доменом
var DefaultDevHosts = []string{"localhost", "127.0.0.1"}

// reservedSubdomains используются внутренними подсистемами
var reservedSubdomains = map[string]struct{}{
	"admin":     {},
	"api":       {},
	"app":       {},
	"cdn":       {},
	"dashboard": {},
	"mail":      {},
	"static":    {},
	"www":       {},
}

// Classifier разбирает хост и путь запроса в ключ поиска
type Classifier struct {
	rootDomain string
	devHosts   map[string]struct{}
}

// New создаёт Classifier для корневого домена rootDomain
func New(rootDomain string, devHosts []string) *Classifier {
	c := &Classifier{
		rootDomain: normalizeHost(rootDomain),
		devHosts:   make(map[string]struct{}, len(devHosts)),
	}
	for _, h := range devHosts {
		c.devHosts[normalizeHost(h)] = struct{}{}
	}
	return c
}

// IsReservedSubdomain сообщает, зарезервирована ли метка поддомена
func IsReservedSubdomain(label string) bool {
	_, ok := reservedSubdomains[strings.ToLower(label)]
	return ok
}

// Classify возвращает ключ поиска и true, если запрос является обращением к короткой ссылке
func (c *Classifier) Classify(method, host, path string) (models.Lookup, bool) {
	if method != http.MethodGet {
		return models.Lookup{}, false
	}

	code := firstSegment(path)
	if code == "" || shortcode.IsReserved(code) {
		return models.Lookup{}, false
	}

	subdomain, ok := c.Subdomain(host)
	if !ok {
		return models.Lookup{}, false
	}

	return models.Lookup{Shortcode: code, Subdomain: subdomain}, true
}

// Subdomain определяет пространство имён по хосту.
// Возвращает false для посторонних и зарезервированных хостов.
func (c *Classifier) Subdomain(host string) (string, bool) {
	h := normalizeHost(host)
	if h == "" {
		return "", false
	}
	if h == c.rootDomain {
		return models.GlobalSubdomain, true
	}
	if _, ok := c.devHosts[h]; ok {
		return models.GlobalSubdomain, true
	}

	suffix := "." + c.rootDomain
	if !strings.HasSuffix(h, suffix) {
		return "", false
	}
	label := strings.TrimSuffix(h, suffix)
	if label == "" || strings.Contains(label, ".") || IsReservedSubdomain(label) {
		return "", false
	}
	return label, true
}

func firstSegment(path string) string {
	p := strings.TrimLeft(path, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return p
}

func normalizeHost(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	if hostOnly, _, err := net.SplitHostPort(h); err == nil {
		h = hostOnly
	}
	return strings.TrimSuffix(h, ".")
}

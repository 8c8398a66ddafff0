// Package proto содержит определения типов для gRPC сервиса коротких ссылок
package proto

import "time"

// CreateMappingRequest представляет запрос на создание короткой ссылки
type CreateMappingRequest struct {
	URL       string     `json:"url"`
	Shortcode string     `json:"shortcode,omitempty"`
	Subdomain string     `json:"subdomain,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// MappingResponse представляет созданную или найденную ссылку
type MappingResponse struct {
	ID          string     `json:"id"`
	ShortURL    string     `json:"short_url"`
	Shortcode   string     `json:"shortcode"`
	Subdomain   string     `json:"subdomain,omitempty"`
	Destination string     `json:"destination"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	// RateLimitRemaining заполняется только для анонимных запросов
	RateLimitRemaining *int `json:"rate_limit_remaining,omitempty"`
}

// ResolveMappingRequest представляет входящий переход, который пограничный маршрутизатор передаёт сервису
type ResolveMappingRequest struct {
	Host      string `json:"host"`
	Path      string `json:"path"`
	SourceIP  string `json:"source_ip,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Country   string `json:"country,omitempty"`
}

// ResolveMappingResponse представляет результат поиска ссылки
type ResolveMappingResponse struct {
	Found       bool   `json:"found"`
	MappingID   string `json:"mapping_id,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// ShortestMappingRequest представляет запрос глобальной ссылки для ссылки владельца
type ShortestMappingRequest struct {
	ID string `json:"id"`
}

// DeleteMappingRequest представляет запрос на удаление ссылки
type DeleteMappingRequest struct {
	ID string `json:"id"`
}

// DeleteMappingResponse представляет ответ на удаление ссылки
type DeleteMappingResponse struct{}

// CheckRateLimitRequest представляет запрос состояния лимита.
// Source учитывается только для авторизованных вызовов, иначе используется адрес вызывающего.
type CheckRateLimitRequest struct {
	Source string `json:"source,omitempty"`
}

// CheckRateLimitResponse представляет состояние суточного лимита
type CheckRateLimitResponse struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"reset_at"`
}

// PingRequest представляет запрос проверки состояния
type PingRequest struct{}

// PingResponse представляет ответ проверки состояния
type PingResponse struct {
	StorageAvailable bool `json:"storage_available"`
}

// Package models содержит доменные типы сервиса коротких ссылок.
package models

import (
	"time"

	"github.com/google/uuid"
)

// GlobalSubdomain обозначает глобальное пространство имён.
// В хранилище хранится именно пустая строка, а не NULL, иначе уникальность (subdomain, shortcode) не работает.
const GlobalSubdomain = ""

// Mapping представляет сохранённое соответствие короткого кода и целевого URL
type Mapping struct {
	ID          uuid.UUID  `json:"id"`
	Shortcode   string     `json:"shortcode"`
	Subdomain   string     `json:"subdomain"`
	Destination string     `json:"destination"`
	OwnerID     *string    `json:"owner_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// IsGlobal сообщает, принадлежит ли ссылка глобальному пространству имён
func (m *Mapping) IsGlobal() bool {
	return m.Subdomain == GlobalSubdomain
}

// IsLive сообщает, действует ли ссылка в момент now (срок истечения строго в будущем)
func (m *Mapping) IsLive(now time.Time) bool {
	return m.ExpiresAt == nil || m.ExpiresAt.After(now)
}

// OwnedBy сообщает, принадлежит ли ссылка владельцу ownerID
func (m *Mapping) OwnedBy(ownerID string) bool {
	return m.OwnerID != nil && *m.OwnerID == ownerID
}

// DeviceClass описывает грубый класс устройства посетителя
type DeviceClass string

const (
	DeviceDesktop DeviceClass = "desktop"
	DeviceMobile  DeviceClass = "mobile"
	DeviceTablet  DeviceClass = "tablet"
)

// ClickEvent представляет одно зафиксированное посещение короткой ссылки
type ClickEvent struct {
	ID           uuid.UUID   `json:"id"`
	MappingID    uuid.UUID   `json:"mapping_id"`
	ClickedAt    time.Time   `json:"clicked_at"`
	ReferrerHost *string     `json:"referrer_host,omitempty"`
	CountryCode  *string     `json:"country_code,omitempty"`
	DeviceClass  DeviceClass `json:"device_class"`
	VisitorHash  string      `json:"visitor_hash"`
}

// Owner описывает владельца ссылок и его лимит, выданный внешней системой тарифов
type Owner struct {
	ID    string `json:"id"`
	Quota int    `json:"quota"`
}

// Lookup содержит ключ поиска, извлечённый из входящего запроса
type Lookup struct {
	Shortcode string
	Subdomain string
}

// RequestMeta содержит метаданные запроса, нужные для записи клика
type RequestMeta struct {
	SourceIP  string
	Referrer  string
	UserAgent string
	Country   string
}

// RateDecision описывает решение ограничителя частоты создания ссылок
type RateDecision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"reset_at"`
}

// CreateRequest представляет JSON-запрос на создание короткой ссылки
type CreateRequest struct {
	URL       string     `json:"url"`
	Shortcode string     `json:"shortcode,omitempty"`
	Subdomain string     `json:"subdomain,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// MappingResponse представляет JSON-ответ с созданной ссылкой
type MappingResponse struct {
	ID          string     `json:"id"`
	ShortURL    string     `json:"short_url"`
	Shortcode   string     `json:"shortcode"`
	Subdomain   string     `json:"subdomain,omitempty"`
	Destination string     `json:"destination"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// ErrorResponse представляет JSON-ответ с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
}

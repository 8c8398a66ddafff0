// Package analytics записывает переходы по коротким ссылкам.
//
// Запись выполняется после отправки ответа и никогда не влияет на него: любые ошибки
// только логируются.
package analytics

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tempizhere/redirector/internal/models"
)

var (
	tabletMarkers = []string{"ipad", "tablet", "kindle", "silk", "playbook"}
	mobileMarkers = []string{"mobi", "iphone", "ipod", "android", "blackberry", "opera mini", "windows phone"}
)

// unknownCountries значения геозаголовка, которые не являются страной
var unknownCountries = map[string]struct{}{
	"XX": {},
	"T1": {},
}

// ClassifyDevice определяет класс устройства по User-Agent.
// Планшеты проверяются раньше телефонов: их User-Agent часто содержит и признаки телефона.
func ClassifyDevice(userAgent string) models.DeviceClass {
	ua := strings.ToLower(userAgent)
	for _, marker := range tabletMarkers {
		if strings.Contains(ua, marker) {
			return models.DeviceTablet
		}
	}
	// Android без "mobile" в User-Agent обычно планшет
	if strings.Contains(ua, "android") && !strings.Contains(ua, "mobile") {
		return models.DeviceTablet
	}
	for _, marker := range mobileMarkers {
		if strings.Contains(ua, marker) {
			return models.DeviceMobile
		}
	}
	return models.DeviceDesktop
}

// ReferrerHost сокращает Referer до имени хоста в нижнем регистре
func ReferrerHost(referrer string) *string {
	raw := strings.TrimSpace(referrer)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil
	}
	return &host
}

// CountryCode проверяет двухбуквенный код страны из геозаголовка
func CountryCode(header string) *string {
	code := strings.ToUpper(strings.TrimSpace(header))
	if len(code) != 2 || code[0] < 'A' || code[0] > 'Z' || code[1] < 'A' || code[1] > 'Z' {
		return nil
	}
	if _, ok := unknownCountries[code]; ok {
		return nil
	}
	return &code
}

// Fingerprint вычисляет отпечаток посетителя, который меняется каждый календарный день UTC
func Fingerprint(secret, sourceIP string, day time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sourceIP + "|" + day.UTC().Format("2006-01-02")))
	return hex.EncodeToString(mac.Sum(nil))
}

// BuildEvent формирует событие перехода из метаданных запроса
func BuildEvent(mappingID uuid.UUID, meta models.RequestMeta, now time.Time, secret string) *models.ClickEvent {
	return &models.ClickEvent{
		ID:           uuid.New(),
		MappingID:    mappingID,
		ClickedAt:    now.UTC(),
		ReferrerHost: ReferrerHost(meta.Referrer),
		CountryCode:  CountryCode(meta.Country),
		DeviceClass:  ClassifyDevice(meta.UserAgent),
		VisitorHash:  Fingerprint(secret, meta.SourceIP, now),
	}
}

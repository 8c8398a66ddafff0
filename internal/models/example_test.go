package models_test

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tempizhere/redirector/internal/models"
)

// ExampleCreateRequest демонстрирует разбор запроса на создание ссылки
func ExampleCreateRequest() {
	var req models.CreateRequest
	_ = json.Unmarshal([]byte(`{"url":"https://dest.example/page","shortcode":"my-link","subdomain":"step"}`), &req)

	fmt.Printf("URL: %s\n", req.URL)
	fmt.Printf("Код: %s\n", req.Shortcode)
	fmt.Printf("Поддомен: %s\n", req.Subdomain)
	fmt.Printf("Без срока: %t\n", req.ExpiresAt == nil)

	// Output:
	// URL: https://dest.example/page
	// Код: my-link
	// Поддомен: step
	// Без срока: true
}

// ExampleMapping_IsLive демонстрирует строгую проверку срока действия ссылки
func ExampleMapping_IsLive() {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	exact := now
	later := now.Add(time.Second)

	fmt.Println((&models.Mapping{}).IsLive(now))
	fmt.Println((&models.Mapping{ExpiresAt: &exact}).IsLive(now))
	fmt.Println((&models.Mapping{ExpiresAt: &later}).IsLive(now))

	// Output:
	// true
	// false
	// true
}

// ExampleMappingResponse демонстрирует сериализацию ответа
func ExampleMappingResponse() {
	resp := models.MappingResponse{
		ID:          "1",
		ShortURL:    "https://example.com/abc123",
		Shortcode:   "abc123",
		Destination: "https://dest.example/page",
	}

	data, _ := json.Marshal(resp)
	fmt.Println(string(data))

	// Output:
	// {"id":"1","short_url":"https://example.com/abc123","shortcode":"abc123","destination":"https://dest.example/page"}
}

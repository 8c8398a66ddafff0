package service_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/tempizhere/redirector/internal/models"
	"github.com/tempizhere/redirector/internal/repository"
	"github.com/tempizhere/redirector/internal/service"
	"go.uber.org/zap"
)

// ExampleService_CreateMapping демонстрирует создание ссылки с пользовательским кодом
func ExampleService_CreateMapping() {
	// Создаём сервис с in-memory репозиторием
	repo := repository.NewMemoryRepository()
	svc := service.NewService(repo, "https://example.com", "example.com", zap.NewNop())

	m, err := svc.CreateMapping(context.Background(), models.CreateRequest{
		URL:       "https://dest.example/page",
		Shortcode: "Promo-2025",
	}, nil)
	if err != nil {
		fmt.Printf("Ошибка создания: %v\n", err)
		return
	}

	fmt.Printf("Код: %s\n", m.Shortcode)
	fmt.Printf("Короткий URL: %s\n", svc.ShortURL(m))

	// Output:
	// Код: promo-2025
	// Короткий URL: https://example.com/promo-2025
}

// ExampleService_CreateMapping_conflict демонстрирует отказ при занятом коде
func ExampleService_CreateMapping_conflict() {
	ctx := context.Background()
	svc := service.NewService(repository.NewMemoryRepository(), "https://example.com", "example.com", zap.NewNop())

	req := models.CreateRequest{URL: "https://dest.example/page", Shortcode: "abc"}
	if _, err := svc.CreateMapping(ctx, req, nil); err != nil {
		fmt.Printf("Ошибка создания: %v\n", err)
		return
	}

	_, err := svc.CreateMapping(ctx, req, nil)
	fmt.Printf("Код занят: %t\n", errors.Is(err, service.ErrShortcodeTaken))
	fmt.Printf("Причина: %v\n", err)

	// Output:
	// Код занят: true
	// Причина: shortcode is already taken
}

// ExampleService_Shortest демонстрирует получение глобальной ссылки для ссылки в поддомене
func ExampleService_Shortest() {
	ctx := context.Background()
	svc := service.NewService(repository.NewMemoryRepository(), "https://example.com", "example.com", zap.NewNop())
	owner := &models.Owner{ID: "user-123", Quota: 10}

	src, err := svc.CreateMapping(ctx, models.CreateRequest{
		URL:       "https://dest.example/page",
		Shortcode: "mysite",
		Subdomain: "step",
	}, owner)
	if err != nil {
		fmt.Printf("Ошибка создания: %v\n", err)
		return
	}
	fmt.Printf("Исходная ссылка: %s\n", svc.ShortURL(src))

	global, err := svc.Shortest(ctx, src.ID, owner)
	if err != nil {
		fmt.Printf("Ошибка: %v\n", err)
		return
	}
	fmt.Printf("Глобальная ссылка: %s\n", svc.ShortURL(global))

	// Output:
	// Исходная ссылка: https://step.example.com/mysite
	// Глобальная ссылка: https://example.com/mysite
}

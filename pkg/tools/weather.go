package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/comigor/gustavo-go/internal/config"
	"github.com/comigor/gustavo-go/internal/logger"
)

const (
	msgWeatherNoKey      = "Chave OpenWeatherMap não configurada."
	msgWeatherNoLocation = "Parâmetro location ausente."
	msgWeatherFailed     = "Não foi possível obter o tempo."
)

// WeatherTool is a tool for looking up the current weather of a city
type WeatherTool struct {
	client *WeatherClient
}

// NewWeatherTool creates a new WeatherTool
func NewWeatherTool(cfg config.WeatherConfig) *WeatherTool {
	return &WeatherTool{
		client: NewWeatherClient(cfg),
	}
}

// Name returns the name of the tool
func (t *WeatherTool) Name() string {
	return "getWeather"
}

// Description returns the description of the tool
func (t *WeatherTool) Description() string {
	return "Obtém o tempo atual para uma cidade."
}

// Parameters returns the tool's argument schema
func (t *WeatherTool) Parameters() []Parameter {
	return []Parameter{
		{Name: "location", Type: ParamTypeString, Description: "Ex.: 'Curitiba, BR'", Required: true},
	}
}

// Run runs the tool
func (t *WeatherTool) Run(ctx context.Context, args map[string]any) map[string]any {
	logger.L.Info("weather tool invoked", "args", args)

	if !t.client.Configured() {
		return ErrorResult(msgWeatherNoKey)
	}
	location, _ := args["location"].(string)
	location = strings.TrimSpace(location)
	if location == "" {
		return ErrorResult(msgWeatherNoLocation)
	}

	w, err := t.client.Current(ctx, location)
	if err != nil {
		logger.L.Warn("weather lookup failed", "location", location, "error", err)
		var upErr *UpstreamError
		if errors.As(err, &upErr) && upErr.Message != "" {
			return ErrorResult(upErr.Message)
		}
		return ErrorResult(msgWeatherFailed)
	}

	return map[string]any{
		"location":    w.Location,
		"temperature": w.Temperature,
		"description": w.Description,
	}
}

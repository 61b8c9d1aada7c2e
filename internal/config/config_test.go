package config

import (
	"testing"
	"time"
)

func TestLoadIncludesPipelineDefaults(t *testing.T) {
	t.Setenv("OCR_LANG", "")
	t.Setenv("OCR_PSM_DEFAULT", "")
	t.Setenv("OCR_USER_DPI", "")
	t.Setenv("OLLAMA_TIMEOUT", "")
	t.Setenv("SUMM_QUICK_THRESHOLD", "")
	t.Setenv("TASK_MAX_RETRIES", "")

	cfg := Load()
	if cfg.OCRLang != "kor" {
		t.Fatalf("expected default ocr lang kor, got %q", cfg.OCRLang)
	}
	if cfg.OCRPSM != 6 {
		t.Fatalf("expected default psm 6, got %d", cfg.OCRPSM)
	}
	if cfg.OCRDPI != 300 {
		t.Fatalf("expected default dpi 300, got %d", cfg.OCRDPI)
	}
	if cfg.OllamaTimeout != 420*time.Second {
		t.Fatalf("expected default read timeout 420s, got %s", cfg.OllamaTimeout)
	}
	if cfg.OllamaConnectTimeout != 30*time.Second {
		t.Fatalf("expected default connect timeout 30s, got %s", cfg.OllamaConnectTimeout)
	}
	if cfg.SummaryQuickThreshold != 2500 {
		t.Fatalf("expected default quick threshold 2500, got %d", cfg.SummaryQuickThreshold)
	}
	if cfg.TaskMaxRetries != 3 {
		t.Fatalf("expected default max retries 3, got %d", cfg.TaskMaxRetries)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("OCR_LANG_SECONDARY", "eng")
	t.Setenv("OCR_UPSCALE", "1.5")
	t.Setenv("OCR_DESKEW", "false")
	t.Setenv("OLLAMA_TIMEOUT", "90")
	t.Setenv("OCR_CACHE_TTL", "10m")
	t.Setenv("ENABLE_LOFFICE", "0")

	cfg := Load()
	if cfg.OCRLangSecondary != "eng" {
		t.Fatalf("expected secondary lang override, got %q", cfg.OCRLangSecondary)
	}
	if cfg.OCRUpscale != 1.5 {
		t.Fatalf("expected upscale 1.5, got %v", cfg.OCRUpscale)
	}
	if cfg.OCRDeskew {
		t.Fatalf("expected deskew disabled")
	}
	if cfg.OllamaTimeout != 90*time.Second {
		t.Fatalf("expected bare seconds to parse, got %s", cfg.OllamaTimeout)
	}
	if cfg.TextCacheTTL != 10*time.Minute {
		t.Fatalf("expected cache ttl 10m, got %s", cfg.TextCacheTTL)
	}
	if cfg.EnableLibreOffice {
		t.Fatalf("expected libreoffice disabled")
	}
}

func TestLoadFallsBackOnMalformedValues(t *testing.T) {
	t.Setenv("OCR_USER_DPI", "high")
	t.Setenv("OCR_UPSCALE", "x2")
	t.Setenv("WORKER_TASK_TIMEOUT", "soon")

	cfg := Load()
	if cfg.OCRDPI != 300 {
		t.Fatalf("expected dpi fallback, got %d", cfg.OCRDPI)
	}
	if cfg.OCRUpscale != 2.0 {
		t.Fatalf("expected upscale fallback, got %v", cfg.OCRUpscale)
	}
	if cfg.WorkerTaskTimeout != 15*time.Minute {
		t.Fatalf("expected timeout fallback, got %s", cfg.WorkerTaskTimeout)
	}
}

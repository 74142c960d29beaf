package archive

import (
	"net/url"
	"strings"

	"github.com/MarcoPoloResearchLab/drawsync/internal/lottery"
)

var (
	urlArchiveHints   = []string{".zip", "documentations", "historique", "archive"}
	urlDrawHints      = []string{"service-draw-info", "tirage", "draw"}
	labelArchiveHints = []string{"historique", "telecharger", "archive"}
	pathArchiveHints  = []string{".zip", "historique", "archive"}
)

// looksLikeArchiveURL keeps links that point at a draw-history download.
func looksLikeArchiveURL(absolute *url.URL) bool {
	normalized := NormalizeText(absolute.String())
	return containsAny(normalized, urlArchiveHints) && containsAny(normalized, urlDrawHints)
}

// looksLikeArchiveLabel applies the per-game archive heuristics to a link.
func looksLikeArchiveLabel(game lottery.Game, label, downloadAttribute string, absolute *url.URL) bool {
	normalizedLabel := NormalizeText(label)
	normalizedDownload := NormalizeText(downloadAttribute)
	normalizedPath := NormalizeText(absolute.Path)

	hasArchiveHint := containsAny(normalizedLabel, labelArchiveHints) ||
		normalizedDownload != "" ||
		containsAny(normalizedPath, pathArchiveHints)
	if !hasArchiveHint {
		return false
	}

	switch game {
	case lottery.GameLoto:
		if !strings.Contains(normalizedLabel, "loto") &&
			!strings.Contains(normalizedDownload, "loto") &&
			!strings.Contains(normalizedPath, "loto") {
			return false
		}
		if strings.Contains(normalizedLabel, "grand loto") || strings.Contains(normalizedLabel, "super loto") {
			return false
		}
		return !containsAny(normalizedDownload, []string{"grandloto", "superloto"}) &&
			!containsAny(normalizedPath, []string{"grandloto", "superloto"})
	case lottery.GameEuroMillions:
		return strings.Contains(normalizedLabel, "euromillion") ||
			strings.Contains(normalizedDownload, "euromillion") ||
			strings.Contains(normalizedPath, "euromillion")
	default:
		return false
	}
}

func containsAny(value string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(value, needle) {
			return true
		}
	}
	return false
}

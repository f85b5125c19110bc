package service

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var hrefPattern = regexp.MustCompile(`href="(https?://[^"]+)"`)

func OpenPixelURL(baseURL string, emailID int) string {
	return fmt.Sprintf("%s/t/o/%d", baseURL, emailID)
}

func ClickURL(baseURL string, emailID int, target string) string {
	return fmt.Sprintf("%s/t/c/%d?url=%s", baseURL, emailID, url.QueryEscape(target))
}

func UnsubscribeURL(baseURL string, emailID int) string {
	return fmt.Sprintf("%s/t/u/%d", baseURL, emailID)
}

// AddTracking routes outbound links through the click redirect and appends an open pixel.
// Links that already point at baseURL are left alone.
func AddTracking(html, baseURL string, emailID int) string {
	html = hrefPattern.ReplaceAllStringFunc(html, func(m string) string {
		target := hrefPattern.FindStringSubmatch(m)[1]
		if strings.HasPrefix(target, baseURL) {
			return m
		}
		return `href="` + ClickURL(baseURL, emailID, target) + `"`
	})

	pixel := fmt.Sprintf(`<img src="%s" width="1" height="1" alt="" style="display:none" />`, OpenPixelURL(baseURL, emailID))
	if i := strings.LastIndex(strings.ToLower(html), "</body>"); i >= 0 {
		return html[:i] + pixel + html[i:]
	}
	return html + pixel
}

// DeviceType buckets a user agent into mobile, tablet or desktop.
func DeviceType(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		return "unknown"
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return "tablet"
	case strings.Contains(ua, "mobi") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		return "mobile"
	default:
		return "desktop"
	}
}

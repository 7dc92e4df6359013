package utils

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

var linkRegex = regexp.MustCompile(`(?i)(?:https?://|www\.)\S+|discord(?:app)?\.com/invite/\S+|discord\.gg/\S+`)

func ContainsLink(content string) bool {
	return linkRegex.MatchString(content)
}

func ExtractLinks(content string) []string {
	return linkRegex.FindAllString(content, -1)
}

// LinkHosts returns the distinct lower-case ASCII hosts of the links in content,
// in order of appearance.
func LinkHosts(content string) []string {
	links := ExtractLinks(content)
	if len(links) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(links))
	hosts := make([]string, 0, len(links))
	for _, raw := range links {
		host, err := linkHost(raw)
		if err != nil || host == "" {
			continue
		}
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		hosts = append(hosts, host)
	}
	return hosts
}

func linkHost(raw string) (string, error) {
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	host := strings.ToLower(parsed.Hostname())
	if ascii, err := idna.ToASCII(host); err == nil {
		host = ascii
	}
	return host, nil
}

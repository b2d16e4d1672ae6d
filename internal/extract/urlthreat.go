package extract

import (
	"net"
	"net/url"
	"strings"
)

// URLThreat is the result of analyzing one extracted URL for phishing signals.
type URLThreat struct {
	URL        string   `json:"url"`
	Suspicious bool     `json:"suspicious"`
	Indicators []string `json:"indicators,omitempty"`
	Level      string   `json:"level"` // low, medium, high
}

// shortenerHosts are link-shortener domains commonly used to hide phishing targets.
var shortenerHosts = map[string]bool{
	"bit.ly": true, "tinyurl.com": true, "goo.gl": true, "t.co": true,
	"ow.ly": true, "is.gd": true, "buff.ly": true, "j.mp": true,
	"shorturl.at": true, "rb.gy": true,
}

// suspiciousURLKeywords are lure words that raise suspicion when present in a URL.
var suspiciousURLKeywords = []string{
	"verify", "secure", "login", "account", "password", "otp",
	"prize", "winner", "claim", "reward", "gift", "free",
	"update", "blocked", "urgent", "kyc",
}

// suspiciousTLDs are cheap TLDs disproportionately used for throwaway phishing sites.
var suspiciousTLDs = []string{
	".xyz", ".top", ".click", ".link", ".online", ".site",
	".club", ".tk", ".ml", ".ga", ".cf", ".gq",
}

// AnalyzeURL inspects a normalized URL for phishing indicators. It never
// fails; unparseable input is reported as non-suspicious.
func AnalyzeURL(normalized string) URLThreat {
	threat := URLThreat{URL: normalized, Level: "low"}
	u, err := url.Parse(normalized)
	if err != nil || u.Host == "" {
		return threat
	}
	host := strings.ToLower(u.Hostname())

	if shortenerHosts[host] {
		threat.Indicators = append(threat.Indicators, "url_shortener")
		threat.Level = "medium"
	}
	if net.ParseIP(host) != nil {
		threat.Indicators = append(threat.Indicators, "ip_literal_host")
		threat.Level = "high"
	}
	for _, tld := range suspiciousTLDs {
		if strings.HasSuffix(host, tld) {
			threat.Indicators = append(threat.Indicators, "suspicious_tld")
			threat.Level = "high"
			break
		}
	}
	lower := strings.ToLower(normalized)
	for _, kw := range suspiciousURLKeywords {
		if strings.Contains(lower, kw) {
			threat.Indicators = append(threat.Indicators, "lure_keyword:"+kw)
			if threat.Level == "low" {
				threat.Level = "medium"
			}
		}
	}
	if strings.Count(u.Path, "/") > 4 {
		threat.Indicators = append(threat.Indicators, "deep_path")
	}
	threat.Suspicious = len(threat.Indicators) > 0
	return threat
}

// AnalyzeURLs analyzes a batch of normalized URLs.
func AnalyzeURLs(urls []string) []URLThreat {
	out := make([]URLThreat, 0, len(urls))
	for _, u := range urls {
		out = append(out, AnalyzeURL(u))
	}
	return out
}

package ids

import "regexp"

var (
	youtubeURLRe = regexp.MustCompile(`(?:youtube\.com/(?:watch\?(?:.*&)?v=|embed/|shorts/|v/)|youtu\.be/)([a-zA-Z0-9_-]{11})`)
	youtubeIDRe  = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
	nicoIDRe     = regexp.MustCompile(`\b(?:sm|nm|so)[0-9]+`)
	nicoThreadRe = regexp.MustCompile(`(?:nicovideo\.jp/watch/|nico\.ms/)([0-9]+)`)
	nicoDigitsRe = regexp.MustCompile(`^[0-9]+$`)
)

// ExtractYouTubeID pulls the 11-char video id from any YouTube url format.
// A bare id is returned unchanged; "" means no id was found.
func ExtractYouTubeID(raw string) string {
	if m := youtubeURLRe.FindStringSubmatch(raw); len(m) >= 2 {
		return m[1]
	}
	if youtubeIDRe.MatchString(raw) {
		return raw
	}
	return ""
}

// ExtractNicoID pulls a video id out of a NicoNico url: an sm/nm/so id, or
// the numeric thread id of a channel video. "" means no id was found.
func ExtractNicoID(raw string) string {
	if id := nicoIDRe.FindString(raw); id != "" {
		return id
	}
	if m := nicoThreadRe.FindStringSubmatch(raw); len(m) >= 2 {
		return m[1]
	}
	if nicoDigitsRe.MatchString(raw) {
		return raw
	}
	return ""
}

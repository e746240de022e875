package mqtt

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxTopicLength is the MQTT limit on topic length in bytes.
const maxTopicLength = 65535

// ValidatePublishTopic checks that topic can be published to: non-empty,
// valid UTF-8, no NUL, within the length limit and free of wildcards.
func ValidatePublishTopic(topic string) error {
	if err := validateTopicText(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards not allowed in %q", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateFilter checks a subscription filter. The multi-level wildcard
// "#" must be the last level and every wildcard must occupy a whole level.
func ValidateFilter(filter string) error {
	if err := validateTopicText(filter); err != nil {
		return err
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return fmt.Errorf("%w: '#' must be the last level in %q", ErrInvalidTopic, filter)
			}
		case level == "+":
		case strings.ContainsAny(level, "+#"):
			return fmt.Errorf("%w: wildcard must occupy a whole level in %q", ErrInvalidTopic, filter)
		}
	}
	return nil
}

func validateTopicText(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(topic) > maxTopicLength {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidTopic, len(topic), maxTopicLength)
	}
	if !utf8.ValidString(topic) || strings.ContainsRune(topic, 0) {
		return fmt.Errorf("%w: must be valid UTF-8 without NUL", ErrInvalidTopic)
	}
	return nil
}

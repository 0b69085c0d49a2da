package mqtt

import (
	"fmt"
	"strings"
)

// maxTopicLength is the MQTT limit on UTF-8 encoded topic length.
const maxTopicLength = 65535

// ValidateTopic checks a topic name used for publishing.
// Topic names must be non-empty and must not contain wildcards.
func ValidateTopic(topic string) error {
	if err := checkTopicBytes(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcard in topic name %q", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateFilter checks a topic filter used for subscribing and routing.
//
// "+" must occupy a whole level; "#" must occupy the whole last level.
//
//	sensors/+/temp   valid
//	sensors/#        valid
//	sensors/te+      invalid
//	sensors/#/temp   invalid
func ValidateFilter(filter string) error {
	if err := checkTopicBytes(filter); err != nil {
		return err
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return fmt.Errorf("%w: %q has '#' before the last level", ErrInvalidTopic, filter)
			}
		case level == "+":
		case strings.ContainsAny(level, "+#"):
			return fmt.Errorf("%w: %q has a wildcard inside a level", ErrInvalidTopic, filter)
		}
	}
	return nil
}

func checkTopicBytes(topic string) error {
	switch {
	case topic == "":
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	case len(topic) > maxTopicLength:
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidTopic, len(topic), maxTopicLength)
	case strings.ContainsRune(topic, 0):
		return fmt.Errorf("%w: contains NUL", ErrInvalidTopic)
	}
	return nil
}

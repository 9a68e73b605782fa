package robopoint

import "github.com/apex/log"

// A Logger is the structured logger used across the consumer. Both
// *log.Logger and *log.Entry from apex/log satisfy it.
type Logger = log.Interface

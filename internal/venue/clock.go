package venue

import "time"

// timeAfter is indirected so reconnect tests can shrink backoff waits
// without sleeping real wall-clock time.
var timeAfter = time.After

// Package chat connects the timer registry to Twitch chat.
//
// A Bot is built once in main and owns:
//   - Supervisor: keeps a single IRC session alive. It waits a startup delay,
//     retries failed attempts a bounded number of times and reconnects after a
//     dropped session. It is also the outbound sink for timer notifications and
//     drops messages while offline.
//   - Dispatcher: classifies inbound lines (!<N>min[<M>], !stoptimer, !pause,
//     !resume, !timers), drops self and duplicate messages and checks the
//     permission gate before calling into the registry.
//
// Credentials: the IRC client needs a bot username and an OAuth token with
// chat:read/chat:edit scopes. When TWITCH_OAUTH_TOKEN is not provided, main
// passes a TokenFunc reading the stored token from the oauth_tokens table for
// provider "twitch".
package chat

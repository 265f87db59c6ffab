// Package browser owns the named browser sessions journeys and recordings
// run against.
//
// A Session is one page opened by a Launcher, exposed to the rest of the
// module as a page.Controller. Two launchers exist: PlaywrightLauncher starts
// a Chromium per session through playwright-go and can record page video,
// while RodLauncher opens isolated incognito pages on a single Chrome, either
// launched locally or attached over its DevTools URL.
//
// The SessionManager enforces the session limit and closes idle sessions.
// The start_browser_session, list_browser_sessions and close_browser_session
// tools expose it over MCP.
package browser

// Package browser implements session.Transport by driving a headless
// Chromium instance through the DevTools protocol.
//
// Every transport launches its own browser process so nothing leaks between
// files. XHR and fetch responses are captured from the moment the page is
// created and handed to the session in the order they finish loading.
package browser

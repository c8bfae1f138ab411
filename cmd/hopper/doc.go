// Command hopper watches a folder for finished recordings and uploads each
// one to the remote service through a headless browser session.
//
// Subcommands:
//
//	hopper watch          run the watch loop in the foreground
//	hopper upload FILE    upload a single file and exit
//	hopper status         query a running watcher over its HTTP API
//	hopper history        list journaled upload outcomes
//	hopper preflight      check folders, browser and credentials
//	hopper test-notify    send a test notification
//	hopper config ...     create, show or validate the configuration
package main

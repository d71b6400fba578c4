// Package editor is the chat command surface for trigger schedules. It turns
// owner commands such as "/trigger_set digest weekly fri 5:00 pm" into
// playbook service calls and replies with the stored schedule rendered in
// English.
package editor

// Package production provides the match-time integrations around the task
// core: status publishing, the driver dashboard, snapshot recording and
// Graphviz export.
package production

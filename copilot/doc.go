// Package copilot assembles the banking agent team: the Coordinator, the
// CustomerSupport, Sales and Transactions specialists, their prompts and the
// tools each of them may call.
package copilot

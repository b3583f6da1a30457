// Package groupchat implements the turn-taking protocol between the banking
// agents.
//
// Every turn a Manager asks the model which agent speaks next, the selected
// agent answers, and the Manager decides whether the agents should continue
// or hand the conversation back to the customer. Both decisions are requested
// as strict JSON (continuation_info and termination_info). Model failures
// degrade to fixed fallbacks: the first agent is selected and the loop
// continues. A hard iteration cap bounds every run.
//
// A transfer_to_<agent> tool call made during a turn is recorded on the
// core.HandOff carried by the context and pre-empts the next selection.
package groupchat

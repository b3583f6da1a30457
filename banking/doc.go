// Package banking holds the retail banking domain: users, accounts,
// transactions, service requests and product offers, the Service operating
// on them, and the function tools each chat agent is allowed to call.
package banking

// Package jobqueue defines the generic contract a job-queue backend has to satisfy in order to be driven
// by a job processing framework. The contract only covers queue level operations (submit, reserve, take,
// acknowledge, reject, count and purge) which means technically we should be able to add a new broker
// type and the framework will be able to use it once we have made the bindings necessary to implement
// the interface.
//
// This package does not know or care about how a backend talks to its broker. Any broker specific
// configuration, declaration or connection handling is expected to be implemented separately.
//
// The only one current implementation provided at the time of writing is:
// - rabbitmq (github.com/jacklaaa89/jobqueue/rabbitmq)
package jobqueue

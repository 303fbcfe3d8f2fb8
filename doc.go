// Package autotask assembles the cooperative task core into a robot: the
// tick scheduler, the ownership registry, the subsystem façades and the
// behaviors built on them.
//
// Everything that touches tasks or the registry runs on the scheduler
// goroutine. Code on other goroutines hands work to the loop with Post.
//
//	r, world, err := autotask.NewSimRobot(config.Default())
//	...
//	r.Post(func() { r.StartAuto(nil) })
//	err = r.Run(ctx)
package autotask

// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

// Route constants shared by handlers and router registration.
const (
	// RouteRoot is the landing page with the sign-in and sign-up forms.
	RouteRoot = "/"

	// Super-administrator routes.
	RouteDashboard    = "/dashboard"
	RouteSchools      = "/schools"
	RouteSchoolAdmins = "/school-admins"

	// School-administrator routes.
	RouteSchoolDashboard = "/school/dashboard"
	RouteSchoolBuses     = "/school/buses"
	RouteSchoolDrivers   = "/school/drivers"
	RouteSchoolRoutes    = "/school/routes"
	RouteSchoolChildren  = "/school/children"
	RouteSchoolParents   = "/school/parents"
	RouteSchoolProfile   = "/school/profile"

	// Auth form targets.
	RouteSignInSuper  = "/sign-in/super"
	RouteSignInSchool = "/sign-in/school"
	RouteSignUp       = "/sign-up"
	RouteSignOut      = "/sign-out"
)

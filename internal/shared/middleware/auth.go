package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"schoolpay-backend/internal/shared/response"
)

// Context keys populated by AuthMiddleware
const (
	CtxUserID    = "user_id"
	CtxRole      = "role"
	CtxStudentID = "student_id"
)

// Roles recognized by the API. Token issuance lives in the identity service;
// this middleware only consumes its claims.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
	RoleBursar  = "bursar"
)

// AuthMiddleware verifies the Bearer token and populates the request context
// with user_id, role and (for student tokens) student_id.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. Extract token from "Bearer <token>"
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header format")
			c.Abort()
			return
		}
		token := parts[1]

		// 2. Verify and parse JWT
		claims := jwt.MapClaims{}
		parsedToken, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(jwtSecret), nil
		})

		if err != nil || !parsedToken.Valid {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}

		// 3. Extract identity claims
		userID, ok := claims["user_id"].(string)
		if !ok || userID == "" {
			response.Unauthorized(c, "invalid user ID in token")
			c.Abort()
			return
		}

		role, _ := claims["role"].(string)
		if role == "" {
			role = RoleStudent
		}

		c.Set(CtxUserID, userID)
		c.Set(CtxRole, role)

		if studentID, ok := claims["student_id"].(string); ok && studentID != "" {
			c.Set(CtxStudentID, studentID)
		}

		c.Next()
	}
}

package docs

// @title           Location Relay API
// @version         1.0
// @description     Live location relay. Drivers publish positions over /driver/{driver_id}, subscribers follow them over /track/{driver_id}. An HTTP fallback accepts locations and serves the last known one.
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    http://www.swagger.io/support
// @contact.email  support@swagger.io

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /
